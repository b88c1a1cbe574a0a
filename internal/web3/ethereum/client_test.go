package ethereum

import (
	"context"
	"math/big"
	"testing"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"

	"ChainPilot/internal/web3"
)

const (
	// The constructor copies a runtime that emits one LOG1 with a fixed
	// topic for any call, so every method in mintableABI succeeds.
	simpleContractBin        = "0x6027600c60003960276000f37f0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f2060006000a100"
	simpleContractEventTopic = "0x0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"
	mintableABI              = `[{"type":"constructor","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"initialSupply","type":"uint256"},{"name":"maxSupply","type":"uint256"}]},{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}]`
)

func newSimulated(t *testing.T) (*Client, *web3.Signer, *simulated.Backend) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := web3.NewSigner(key)

	funds, _ := new(big.Int).SetString("100000000000000000000", 10)
	backend := simulated.NewBackend(coretypes.GenesisAlloc{
		signer.Address(): {Balance: funds},
	})
	t.Cleanup(func() { _ = backend.Close() })

	client := NewSimulatedClient("simulated", backend)
	t.Cleanup(client.Close)
	return client, signer, backend
}

func TestClientTransferMovesFunds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, signer, _ := newSimulated(t)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	amount, err := web3.ParseEther("1.5")
	if err != nil {
		t.Fatalf("parse ether: %v", err)
	}
	result, err := client.Transfer(ctx, signer, recipient, amount)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.Hash == (common.Hash{}) || result.From != signer.Address() {
		t.Fatalf("unexpected transfer result %+v", result)
	}

	if _, err := client.WaitMined(ctx, result.Hash); err != nil {
		t.Fatalf("wait mined: %v", err)
	}

	balance, err := client.Balance(ctx, recipient)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if web3.FormatEther(balance) != "1.5" {
		t.Fatalf("unexpected recipient balance %s", web3.FormatEther(balance))
	}
}

func TestClientDeployTransactSubscribeBatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, signer, backend := newSimulated(t)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	auth, err := signer.TransactOpts(ctx, chainID)
	if err != nil {
		t.Fatalf("transact opts: %v", err)
	}
	auth.GasLimit = 1_000_000

	supply := new(big.Int).Mul(big.NewInt(1_000), big.NewInt(1e18))
	deployResult, err := client.DeployContract(ctx, auth, mintableABI, common.FromHex(simpleContractBin), "Agentonic", "AGT", supply, supply)
	if err != nil {
		t.Fatalf("deploy contract: %v", err)
	}
	if deployResult.ContractAddress == (common.Address{}) {
		t.Fatal("expected contract address to be non-zero")
	}

	snapshot, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if snapshot.ChainID != "0x"+chainID.Text(16) {
		t.Fatalf("unexpected chain id %s", snapshot.ChainID)
	}
	if snapshot.BlockNumber == "0x0" {
		t.Fatal("expected block number to advance after deployment")
	}

	logQuery := gethcore.FilterQuery{Addresses: []common.Address{deployResult.ContractAddress}}
	sub, err := client.SubscribeEvents(ctx, logQuery)
	if err != nil {
		t.Fatalf("subscribe events: %v", err)
	}
	defer sub.Close()

	minted, err := client.Transact(ctx, auth, deployResult.ContractAddress, mintableABI, "mint", signer.Address(), supply)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	receipt, err := client.WaitMined(ctx, minted.Hash)
	if err != nil {
		t.Fatalf("wait mined: %v", err)
	}
	if len(receipt.Logs) == 0 {
		t.Fatal("expected receipt to contain logs")
	}

	expectedTopic := common.HexToHash(simpleContractEventTopic)
	select {
	case log := <-sub.Logs():
		if log.Address != deployResult.ContractAddress {
			t.Fatalf("unexpected log address %s", log.Address.Hex())
		}
		if len(log.Topics) == 0 || log.Topics[0] != expectedTopic {
			t.Fatalf("unexpected log topics %+v", log.Topics)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event log")
	}

	nonce, err := backend.Client().PendingNonceAt(ctx, signer.Address())
	if err != nil {
		t.Fatalf("pending nonce: %v", err)
	}
	gasPrice, err := backend.Client().SuggestGasPrice(ctx)
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      120000,
		To:       &deployResult.ContractAddress,
	})
	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}

	hashes, err := client.SendBatchTransactions(ctx, []*coretypes.Transaction{signed})
	if err != nil {
		t.Fatalf("send batch: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != signed.Hash() {
		t.Fatalf("unexpected hashes %v", hashes)
	}
}

func TestTransactRejectsUnknownMethod(t *testing.T) {
	ctx := context.Background()
	client, signer, _ := newSimulated(t)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	auth, err := signer.TransactOpts(ctx, chainID)
	if err != nil {
		t.Fatalf("transact opts: %v", err)
	}
	if _, err := client.Transact(ctx, auth, common.Address{}, mintableABI, "burn"); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

var _ web3.Client = (*Client)(nil)
