package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type TokenType string

const (
	TokenTypeETH     TokenType = "ETH"
	TokenTypeERC20   TokenType = "ERC20"
	TokenTypeERC721  TokenType = "ERC721"
	TokenTypeERC1155 TokenType = "ERC1155"
)

func (t TokenType) IsValid() bool {
	switch t {
	case TokenTypeETH, TokenTypeERC20, TokenTypeERC721, TokenTypeERC1155:
		return true
	default:
		return false
	}
}

func (t *TokenType) UnmarshalText(text []byte) error {
	tt := TokenType(text)
	if !tt.IsValid() {
		return fmt.Errorf("unknown token type %q", text)
	}
	*t = tt
	return nil
}

type Token struct {
	Name      string                    `json:"name"`
	Symbol    string                    `json:"symbol"`
	Decimals  uint8                     `json:"decimals"`
	Addresses map[uint64]common.Address `json:"addresses"`
	Type      TokenType                 `json:"type"`
}

func (t *Token) IsNative() bool {
	return t.Type == TokenTypeETH
}

// Address returns the token contract deployed on the given chain.
// The second result is false if the token is not known to exist there.
func (t *Token) Address(chainID uint64) (common.Address, bool) {
	addr, ok := t.Addresses[chainID]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}
