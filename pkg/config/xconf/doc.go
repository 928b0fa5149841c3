// Package xconf 基于 koanf 的配置加载器。
//
// 支持 YAML（.yaml/.yml）和 JSON（.json）。多个文件按顺序合并，
// 后加载的覆盖先加载的同名键，适合"全局配置 + 项目配置"的分层用法：
//
//	var cfg xetcdv2.Config
//	if err := xconf.Load(&cfg, "/etc/xetcdctl.yaml", "./xetcdctl.yaml"); err != nil {
//		return err
//	}
//
// 结构体字段通过 koanf 标签映射。xconf 不做字段校验和默认值注入，
// 这些由目标类型自己负责（例如 Config.Validate）。
package xconf
