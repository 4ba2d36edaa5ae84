package service

// IDGenerator 发号器，为持久化实体分配全局唯一的 int64 ID
// 由 Snowflake 生成器（idgen.Int64Generator）满足
type IDGenerator interface {
	Next() int64
}
