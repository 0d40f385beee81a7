// Package utils 提供哈希与随机数等通用工具
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
)

// SHA256Hash 计算 SHA256 哈希
func SHA256Hash(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// RandInt 生成 [min, max] 区间内的随机整数
func RandInt(min, max int) int {
	return min + rand.Intn(max-min+1)
}
