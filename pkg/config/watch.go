package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// Watch 监听 --config 指定的文件，每次写入后重新解码并校验，结果交给 onChange。
// 校验失败时 cfg 为 nil，调用方保留旧值。
func Watch(cmd *cobra.Command, onChange func(cfg *Config, err error)) error {
	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		return ErrNoConfigFile
	}
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return nil
}
