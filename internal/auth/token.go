package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// トークン文字種と既定長。
// 62文字×64桁で衝突確率は実用上無視できるが、生成時点の一意性は必ずストアで確認する。
const (
	tokenAlphabet      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultTokenLength = 64
)

// TokenChecker は候補トークンが既にいずれかのアカウントに
// 割り当てられているかを返す。repository.AccountRepositoryの
// FindByLoginTokenを畳み込んだ形で渡す。
type TokenChecker func(ctx context.Context, token string) (exists bool, err error)

// TokenGenerator は一意で高エントロピーな不透明ログイントークンを生成する。
// 乱数源はcrypto/randを使用する。トークンは資格情報の代わりに
// クライアントへ渡されるため、予測可能な乱数源を使ってはならない。
type TokenGenerator struct {
	check  TokenChecker
	length int
}

// NewTokenGenerator はTokenGeneratorを生成する。
// lengthが0以下の場合はDefaultTokenLengthを使用する。
func NewTokenGenerator(check TokenChecker, length int) *TokenGenerator {
	if length <= 0 {
		length = DefaultTokenLength
	}
	return &TokenGenerator{check: check, length: length}
}

// Generate は一意なログイントークンを生成する。
// 各文字をcrypto/randでアルファベットから一様に抽選し、
// ストア上に同じトークンが存在しないことを確認できるまで再生成する。
// 再試行回数に上限は設けない（衝突確率が無視できるため実際には再試行は起きない）。
// 同時に進行中の別の生成呼び出しとの一意性までは保証しない。その競合は
// ストレージ層の一意制約が検出し、呼び出し側がリトライする。
func (g *TokenGenerator) Generate(ctx context.Context) (string, error) {
	for {
		token, err := g.sample()
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}

		exists, err := g.check(ctx, token)
		if err != nil {
			return "", fmt.Errorf("failed to check token uniqueness: %w", err)
		}
		if !exists {
			return token, nil
		}
	}
}

// Length は生成するトークンの長さを返す。
func (g *TokenGenerator) Length() int {
	return g.length
}

// sample は設定長のトークン候補を1つ生成する。
func (g *TokenGenerator) sample() (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, g.length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}
