package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"srtpanel/internal/models"
)

const (
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
	passwordHashIterations = 120000
)

// Authenticate verifies the username/password pair against the stored digest
// and returns the matching record. A mismatch yields ErrInvalidCredentials
// without revealing whether the account exists.
func (s *Storage) Authenticate(username, password string) (models.AuthRecord, error) {
	if password == "" {
		return models.AuthRecord{}, errors.New("password is required")
	}
	record, ok := s.findAuthRecord(username)
	if !ok {
		return models.AuthRecord{}, ErrInvalidCredentials
	}
	if err := verifyPassword(record.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.AuthRecord{}, ErrInvalidCredentials
		}
		return models.AuthRecord{}, err
	}
	return record, nil
}

// ChangePassword replaces the stored digest after proving knowledge of the
// current password.
func (s *Storage) ChangePassword(username, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}
	if _, err := s.Authenticate(username, oldPassword); err != nil {
		return err
	}
	return s.SetPassword(username, newPassword)
}

// SetPassword overwrites the digest for the named account without requiring
// the old password. Reserved for operator tooling.
func (s *Storage) SetPassword(username, password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	index := -1
	for i, record := range updated.AuthRecords {
		if record.Username == username {
			index = i
			break
		}
	}
	if index < 0 {
		return ErrAccountNotFound
	}
	updated.AuthRecords[index].PasswordHash = hashed

	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

func (s *Storage) findAuthRecord(username string) (models.AuthRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.data.AuthRecords {
		if record.Username == username {
			return record, true
		}
	}
	return models.AuthRecord{}, false
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, passwordHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), salt, passwordHashIterations, passwordHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", passwordHashIterations, encodedSalt, encodedKey), nil
}

func verifyPassword(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return fmt.Errorf("verify password: invalid hash format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("verify password: unsupported hash identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return fmt.Errorf("verify password: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify password: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify password: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
