package auth

import (
	"errors"
	"fmt"

	"github.com/hitoshi/learnhub/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const MaxPasswordBytes = 72

// PasswordHasher はbcryptでパスワードをハッシュ化・照合する。
type PasswordHasher struct {
	cost      int
	dummyHash []byte
}

// NewPasswordHasher はPasswordHasherを生成する。costが0の場合はbcrypt.DefaultCost。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	// 存在しないメールアドレスでも照合時間を揃えるためのハッシュ
	dummy, _ := bcrypt.GenerateFromPassword([]byte("learnhub-dummy-password"), cost)
	return &PasswordHasher{cost: cost, dummyHash: dummy}
}

// Hash はパスワードのbcryptハッシュを返す。
// MaxPasswordBytesを超えるパスワードは入力エラーとして返す。
func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", model.NewValidationError(fmt.Sprintf("パスワードは%dバイト以内で入力してください。", MaxPasswordBytes))
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare はハッシュとパスワードが一致するかを返す。
// 不一致以外のエラー（ハッシュ形式不正など）はerrとして返す。
func (h *PasswordHasher) Compare(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("failed to compare password: %w", err)
}

// CompareDummy は照合対象が無い場合に同程度の時間を消費する。
func (h *PasswordHasher) CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
}
