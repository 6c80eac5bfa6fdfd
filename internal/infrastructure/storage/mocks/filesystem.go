// Package mocks provides testify mocks for the storage collaborator.
package mocks

import (
	"catalog-backend/internal/infrastructure/storage"

	"github.com/stretchr/testify/mock"
)

// MockFileSystem is a mock implementation of storage.FileSystem
type MockFileSystem struct {
	mock.Mock
}

var _ storage.FileSystem = (*MockFileSystem)(nil)

func (m *MockFileSystem) Exists(path string) bool {
	args := m.Called(path)
	return args.Bool(0)
}

func (m *MockFileSystem) Stat(path string) (storage.FileInfo, error) {
	args := m.Called(path)
	return args.Get(0).(storage.FileInfo), args.Error(1)
}

func (m *MockFileSystem) ReadFile(path string) ([]byte, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockFileSystem) WriteFile(path string, data []byte) error {
	args := m.Called(path, data)
	return args.Error(0)
}

func (m *MockFileSystem) Copy(src, dst string) error {
	args := m.Called(src, dst)
	return args.Error(0)
}

func (m *MockFileSystem) Glob(pattern string) ([]string, error) {
	args := m.Called(pattern)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockFileSystem) Remove(path string) error {
	args := m.Called(path)
	return args.Error(0)
}
