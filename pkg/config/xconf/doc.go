// Package xconf 提供配置加载、环境变量覆盖与热重载，基于 koanf 实现。
//
// # 加载顺序
//
//  1. 文件（New）或字节数据（NewFromBytes），支持 YAML 与 JSON
//  2. 环境变量覆盖（[WithEnvPrefix]）：TOOLHUB_STORE__API_KEY 覆盖 store.api_key，
//     双下划线表示层级，键名统一小写
//
// # Unmarshal
//
// 使用 mapstructure 弱类型反序列化，"10m" 可直接解析为 time.Duration，
// "8080" 可解析为 int。字段校验由调用方完成。
//
// # 配置监视
//
// [Watch] 监视配置文件所在目录（兼容编辑器的原子替换写入），内置防抖，
// 变更后调用 Reload 并通知回调。从字节数据创建的 Config 不支持监视。
package xconf
