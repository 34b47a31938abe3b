package onboarding

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// codeAlphabet 是绑定码的字符集（base36，统一大写）。
const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CodeLength 是绑定码的长度。
const CodeLength = 6

// Rand 抽象随机源，便于测试注入确定性序列。*math/rand.Rand 天然满足该接口。
type Rand interface {
	Intn(n int) int
	Read(p []byte) (n int, err error)
}

// Provisioner 负责派生智能体地址与绑定码。派生是纯生成操作，无副作用。
// 地址是演示用途的假名标识而非签名凭证，因此均匀随机已经足够。
type Provisioner struct {
	mu  sync.Mutex
	rng Rand
}

// NewProvisioner 创建 Provisioner。rng 为 nil 时使用时间种子的默认随机源。
func NewProvisioner(rng Rand) *Provisioner {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Provisioner{rng: rng}
}

// DeriveAddress 为每次调用独立生成一个 160 位十六进制地址（0x + 40 个小写
// 十六进制字符）。并发引导的钱包依赖整个地址空间上的均匀分布避免碰撞。
func (p *Provisioner) DeriveAddress() string {
	var raw [common.AddressLength]byte
	p.mu.Lock()
	_, _ = p.rng.Read(raw[:])
	p.mu.Unlock()
	return strings.ToLower(common.BytesToAddress(raw[:]).Hex())
}

// NewCode 生成 6 位 base36 大写绑定码。唯一性由 Registry 在签发时保证。
func (p *Provisioner) NewCode() string {
	buf := make([]byte, CodeLength)
	p.mu.Lock()
	for i := range buf {
		buf[i] = codeAlphabet[p.rng.Intn(len(codeAlphabet))]
	}
	p.mu.Unlock()
	return string(buf)
}
