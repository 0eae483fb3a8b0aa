package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/presenter/http/render"
)

type ctxKey int

const (
	addressCtxKey ctxKey = iota
	tokenCtxKey
	chainPairCtxKey
	hashCtxKey
)

var ErrUnknownToken = fmt.Errorf("%w: unknown token", entity.ErrConfiguration)

type ChainPair struct {
	SrcChainID  uint64
	DestChainID uint64
}

// param reads a path parameter, falling back to the query string.
func param(r *http.Request, name string) string {
	if v := chi.URLParam(r, name); v != "" {
		return v
	}
	return r.URL.Query().Get(name)
}

func GetAddressMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := param(r, "address")
		if !common.IsHexAddress(addr) {
			render.Error(w, r, fmt.Errorf("invalid address %q: %w", addr, entity.ErrPrecondition))
			return
		}

		ctx := context.WithValue(r.Context(), addressCtxKey, common.HexToAddress(addr))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Address(ctx context.Context) common.Address {
	if addr, ok := ctx.Value(addressCtxKey).(common.Address); ok {
		return addr
	}
	return common.Address{}
}

// GetTokenMiddleware resolves the {symbol} parameter case-insensitively against tokens.
func GetTokenMiddleware(tokens map[string]*entity.Token) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			symbol := param(r, "symbol")

			token, ok := tokens[strings.ToUpper(symbol)]
			if !ok || token == nil {
				render.Error(w, r, fmt.Errorf("%w %q", ErrUnknownToken, symbol))
				return
			}

			ctx := context.WithValue(r.Context(), tokenCtxKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Token(ctx context.Context) *entity.Token {
	if token, ok := ctx.Value(tokenCtxKey).(*entity.Token); ok {
		return token
	}
	return nil
}

func parseChainID(r *http.Request, names ...string) (uint64, error) {
	for _, name := range names {
		raw := param(r, name)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", name, raw, entity.ErrPrecondition)
		}
		return id, nil
	}
	return 0, nil
}

// GetChainPairMiddleware reads the source and destination chain ids.
// A missing source chain is kept as zero, a missing destination chain is rejected.
func GetChainPairMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src, err := parseChainID(r, "srcChainID", "src")
		if err != nil {
			render.Error(w, r, err)
			return
		}
		dest, err := parseChainID(r, "destChainID", "dest")
		if err != nil {
			render.Error(w, r, err)
			return
		}
		if dest == 0 {
			render.Error(w, r, fmt.Errorf("destination chain id is required: %w", entity.ErrPrecondition))
			return
		}

		ctx := context.WithValue(r.Context(), chainPairCtxKey, ChainPair{SrcChainID: src, DestChainID: dest})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetChainPair(ctx context.Context) ChainPair {
	if pair, ok := ctx.Value(chainPairCtxKey).(ChainPair); ok {
		return pair
	}
	return ChainPair{}
}

// GetHashMiddleware parses the named 32 byte hex parameter.
func GetHashMiddleware(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := param(r, name)
			if len(strings.TrimPrefix(raw, "0x")) != 2*common.HashLength {
				render.Error(w, r, fmt.Errorf("invalid %s %q: %w", name, raw, entity.ErrPrecondition))
				return
			}

			ctx := context.WithValue(r.Context(), hashCtxKey, common.HexToHash(raw))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Hash(ctx context.Context) common.Hash {
	if hash, ok := ctx.Value(hashCtxKey).(common.Hash); ok {
		return hash
	}
	return common.Hash{}
}
