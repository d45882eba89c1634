/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// Service/keys for OS keyring.
const (
	keyringService = "CaseForge"
	keyringToken   = "backend_token"
)

// ErrTokenNotFound is returned when no backend token is stored.
var ErrTokenNotFound = errors.New("backend token not found")

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// SetTokenStore swaps the keyring backend and returns a restore func.
func SetTokenStore(ts TokenStore) (restore func()) {
	prev := tokenStore
	tokenStore = ts
	return func() { tokenStore = prev }
}

// BackendToken returns the stored remote backend token.
func BackendToken() (string, error) { return tokenStore.Get(keyringService, keyringToken) }

// ClearBackendToken removes the stored remote backend token.
func ClearBackendToken() error { return tokenStore.Delete(keyringService, keyringToken) }

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrTokenNotFound
	}
	return v, err
}

func (osKeyring) Set(service, key, value string) error { return keyring.Set(service, key, value) }

func (osKeyring) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// memTokenStore is an in-process TokenStore for tests and headless environments.
type memTokenStore struct{ m map[string]string }

// NewMemoryTokenStore returns a TokenStore that keeps tokens in memory only.
func NewMemoryTokenStore() TokenStore { return &memTokenStore{m: map[string]string{}} }

func (s *memTokenStore) Get(service, key string) (string, error) {
	v, ok := s.m[service+"/"+key]
	if !ok {
		return "", ErrTokenNotFound
	}
	return v, nil
}

func (s *memTokenStore) Set(service, key, value string) error {
	s.m[service+"/"+key] = value
	return nil
}

func (s *memTokenStore) Delete(service, key string) error {
	delete(s.m, service+"/"+key)
	return nil
}
