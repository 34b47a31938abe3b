package web3

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Probe validates that the RPC endpoint of a network definition answers and
// reports the expected chain id. Definitions without an RPC URL are treated
// as descriptive-only and pass without a network round trip.
func Probe(ctx context.Context, name string, def NetworkDefinition) error {
	if def.RPCURL == "" {
		return nil
	}

	client, err := ethclient.DialContext(ctx, def.RPCURL)
	if err != nil {
		return fmt.Errorf("连接网络 %s 失败: %w", name, err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("查询网络 %s 的链标识失败: %w", name, err)
	}
	if def.ChainID != 0 && chainID.Int64() != def.ChainID {
		return fmt.Errorf("网络 %s 链标识不匹配: 配置 %d, 实际 %s", name, def.ChainID, chainID)
	}
	return nil
}
