// Package xttl 提供容量有界、按插入顺序淘汰（FIFO）、带 TTL 的进程内缓存，
// 用作远端数据源前的读穿透（read-through）层。
//
// # 核心特性
//
//   - 容量有界：每次 Set 返回后条目数不超过 Capacity
//   - FIFO 淘汰：新键写入且缓存已满时，淘汰最早插入的一个条目；Get 不改变顺序
//   - 惰性过期：Get 命中超过 TTL 的条目时删除并返回 miss，立即释放容量
//   - 值隔离：写入时 JSON 编码，读取时解码，调用方修改返回值不会影响缓存
//   - 预加载：[Cache.Preload] 并发拉取缺失的键，单个失败被记录并吞掉
//
// # 覆盖写语义
//
// Set 已存在的键会替换值并重置插入时间（TTL 重新计时），
// 但保留该键首次插入时的淘汰位置。
//
// # 不可表示的值
//
// 值无法编码（如包含 channel、func）时，Set 写入一个占位条目并返回 false。
// 占位条目占用容量，Get 对其始终返回 miss，后续成功的 Set 会覆盖它。
//
// # 设计决策
//
//   - 所有状态由单个 sync.Mutex 保护，"淘汰最旧 + 插入新键"在同一临界区内完成
//   - 编解码在锁外执行，编码结果（[]byte）写入后不再修改
//   - 时钟可注入（[WithClock]），测试使用 clockwork.FakeClock 推进时间
//
// # 已知限制
//
//   - Len/Keys 包含已过期但尚未被访问的条目；需要主动回收时调用 [Cache.PurgeExpired]
//   - 无跨进程一致性，不感知数据源变更，数据陈旧度上限为 TTL
//   - Clear 不触发淘汰回调
package xttl
