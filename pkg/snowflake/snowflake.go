package snowflake

import (
	"errors"

	sf "github.com/bwmarrin/snowflake"
)

var node *sf.Node

// Init 初始化雪花算法节点
func Init(machineID int64) (err error) {
	node, err = sf.NewNode(machineID)
	return
}

// GetID 生成全局唯一的任务ID（字符串形式，避免前端 int64 精度问题）
func GetID() (string, error) {
	if node == nil {
		return "", errors.New("snowflake not initialized; call Init")
	}
	return node.Generate().String(), nil
}
