package paths

import (
	"os"
	"path/filepath"
)

// AppName 数据目录名
const AppName = "apeyolo"

// GetDataDir 获取应用数据目录，APEYOLO_HOME 优先
func GetDataDir() string {
	if home := os.Getenv("APEYOLO_HOME"); home != "" {
		return home
	}
	userConfigDir, err := os.UserConfigDir()
	if err != nil || userConfigDir == "" {
		return filepath.Join(".", "data")
	}
	return filepath.Join(userConfigDir, AppName)
}

// ConfigFile 默认配置文件路径
func ConfigFile() string {
	return filepath.Join(GetDataDir(), "config.yaml")
}

// DatabaseFile 默认审计数据库路径
func DatabaseFile() string {
	return filepath.Join(GetDataDir(), "apeyolo.db")
}

// EnsureDir 确保路径所在目录存在
func EnsureDir(file string) error {
	return os.MkdirAll(filepath.Dir(file), 0o755)
}
