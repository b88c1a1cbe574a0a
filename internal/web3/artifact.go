package web3

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Artifact is the subset of a Hardhat/Foundry build artifact needed to deploy
// and call a contract.
type Artifact struct {
	ContractName string
	ABI          string
	Bytecode     []byte
}

type artifactFile struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     json.RawMessage `json:"bytecode"`
}

// LoadArtifact reads a compiled contract artifact from disk.
func LoadArtifact(path string) (Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("读取合约产物失败: %w", err)
	}
	return ParseArtifact(content)
}

// ParseArtifact decodes artifact JSON. Bytecode may be a hex string or a
// Foundry style {"object": "0x..."} value.
func ParseArtifact(content []byte) (Artifact, error) {
	var file artifactFile
	if err := json.Unmarshal(content, &file); err != nil {
		return Artifact{}, fmt.Errorf("解析合约产物失败: %w", err)
	}
	if len(file.ABI) == 0 {
		return Artifact{}, fmt.Errorf("合约产物缺少 abi")
	}
	if _, err := abi.JSON(strings.NewReader(string(file.ABI))); err != nil {
		return Artifact{}, fmt.Errorf("合约 ABI 非法: %w", err)
	}

	var code string
	if err := json.Unmarshal(file.Bytecode, &code); err != nil {
		var object struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(file.Bytecode, &object); err != nil {
			return Artifact{}, fmt.Errorf("合约产物缺少 bytecode")
		}
		code = object.Object
	}
	bytecode := common.FromHex(code)
	if len(bytecode) == 0 {
		return Artifact{}, fmt.Errorf("合约字节码不能为空")
	}

	return Artifact{
		ContractName: file.ContractName,
		ABI:          string(file.ABI),
		Bytecode:     bytecode,
	}, nil
}
