package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/devgate/internal/compat"
)

// MockObserver is a mock implementation of compat.Observer.
type MockObserver struct {
	mock.Mock
}

//nolint:revive
func (m *MockObserver) ObserveDecision(d compat.Decision) {
	m.Called(d)
}
