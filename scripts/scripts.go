package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

const (
	buildImage = "xblinker"
	mountDir   = "/blinker"
)

func must(err error) {
	if err != nil {
		fmt.Println(err)
		panic(err)
	}
}

type SemanticVersion struct {
	major int
	minor int
	patch int
}

var semVerPattern = regexp.MustCompile(`^v(\d+)\.(\d+)\.(\d+)$`)

func ParseSemVer(s string) (SemanticVersion, error) {
	res := semVerPattern.FindStringSubmatch(s)
	if len(res) < 4 {
		return SemanticVersion{}, fmt.Errorf("invalid semantic version: '%s'", s)
	}

	var sv SemanticVersion
	var err error
	sv.major, err = strconv.Atoi(res[1])
	if err != nil {
		return sv, err
	}
	sv.minor, err = strconv.Atoi(res[2])
	if err != nil {
		return sv, err
	}
	sv.patch, err = strconv.Atoi(res[3])
	if err != nil {
		return sv, err
	}

	return sv, nil
}

func (sv SemanticVersion) NextMajor() SemanticVersion {
	return SemanticVersion{major: sv.major + 1}
}

func (sv SemanticVersion) NextMinor() SemanticVersion {
	return SemanticVersion{major: sv.major, minor: sv.minor + 1}
}

func (sv SemanticVersion) NextPatch() SemanticVersion {
	return SemanticVersion{major: sv.major, minor: sv.minor, patch: sv.patch + 1}
}

func (sv SemanticVersion) String() string {
	return fmt.Sprintf("v%d.%d.%d", sv.major, sv.minor, sv.patch)
}

// NextVersion applies a -version argument to the current release: a bump
// kind (major, minor, patch) or an exact version.
func NextVersion(current SemanticVersion, bump string) (SemanticVersion, error) {
	switch bump {
	case "":
		return SemanticVersion{}, fmt.Errorf("-version is required with release")
	case "major":
		return current.NextMajor(), nil
	case "minor":
		return current.NextMinor(), nil
	case "patch":
		return current.NextPatch(), nil
	default:
		return ParseSemVer(bump)
	}
}

var (
	actionFlag  string
	versionFlag string
)

func main() {
	flag.StringVar(&actionFlag, "action", "", "Choose your action")
	flag.StringVar(&versionFlag, "version", "", "Used with -action release; a bump (major, minor, patch) or an exact version (e.g. v1.2.3)")

	flag.Parse()

	switch actionFlag {
	case "":
		fmt.Println("An action is required")
		os.Exit(1)

	case "release":
		release()

	default:
		fmt.Printf("Invalid action: '%s'\n", actionFlag)
		os.Exit(1)
	}
}

func release() {
	fmt.Println("Cutting new release")

	gitDescribe, err := exec.Command("git", "describe", "--abbrev=0").Output()
	must(err)
	currentVersionStr := strings.TrimSpace(string(gitDescribe))
	fmt.Println("Current version:", currentVersionStr)

	currentVersion, err := ParseSemVer(currentVersionStr)
	must(err)

	newVersion, err := NextVersion(currentVersion, versionFlag)
	must(err)
	fmt.Println("New version:", newVersion)

	cwd, err := os.Getwd()
	must(err)

	mountArg := fmt.Sprintf(`type=bind,source=%s,target=%s`, cwd, mountDir)
	fmt.Println(mountArg)

	// Cross-compile for the boards
	buildCmd := exec.Command("docker", "run",
		"--mount", mountArg,
		"--interactive",
		"--workdir", mountDir,
		buildImage,
		"bash", mountDir+"/scripts/make.sh", newVersion.String(),
	)
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	must(buildCmd.Run())

	releaseCmd := exec.Command(
		"gh", "release", "create",
		newVersion.String(),
		"--generate-notes",
		"./dist/*.tgz",
	)
	releaseCmd.Stdout = os.Stdout
	releaseCmd.Stderr = os.Stderr
	must(releaseCmd.Run())
}
