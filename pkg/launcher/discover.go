package launcher

import (
	"os"
	"path/filepath"
	"runtime"
)

// EnvInstallPathVar points at the NapCat-QCE install directory.
const EnvInstallPathVar = "NAPCAT_QCE_PATH"

// installDirName is the distribution directory name shipped by upstream.
const installDirName = "NapCat-QCE-Windows-x64"

// bootExecutable must exist inside a valid install directory.
const bootExecutable = "NapCatWinBootMain.exe"

// FindInstallPath locates the NapCat-QCE installation. It checks the
// NAPCAT_QCE_PATH environment variable, then the working directory, the
// home directory and the parent directory. Returns empty string when
// nothing is found.
func FindInstallPath() string {
	if envPath := os.Getenv(EnvInstallPathVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates,
			filepath.Join(cwd, installDirName),
			filepath.Join(filepath.Dir(cwd), installDirName),
		)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, installDirName))
	}

	for _, dir := range candidates {
		if isInstallDir(dir) {
			return dir
		}
	}
	return ""
}

func isInstallDir(dir string) bool {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return false
	}
	if _, err := os.Stat(filepath.Join(dir, bootExecutable)); err == nil {
		return true
	}
	// Non-Windows installs ship a shell launcher instead of the boot exe
	if runtime.GOOS != "windows" {
		if _, err := os.Stat(filepath.Join(dir, "launcher.sh")); err == nil {
			return true
		}
	}
	return false
}

// FindQQPath locates the QQ client executable on this machine. Returns
// empty string when nothing is found.
func FindQQPath() string {
	var candidates []string
	switch runtime.GOOS {
	case "windows":
		for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)", "LOCALAPPDATA"} {
			if base := os.Getenv(env); base != "" {
				candidates = append(candidates,
					filepath.Join(base, "Tencent", "QQNT", "QQ.exe"),
					filepath.Join(base, "Programs", "Tencent", "QQNT", "QQ.exe"),
				)
			}
		}
	case "linux":
		candidates = []string{"/opt/QQ/qq", "/usr/bin/qq"}
	case "darwin":
		candidates = []string{"/Applications/QQ.app/Contents/MacOS/QQ"}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
