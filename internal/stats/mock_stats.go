package stats

import "github.com/stretchr/testify/mock"

type MockStatsUpdater struct {
	mock.Mock
}

// NewPermissiveMock returns a mock that accepts any metric update. Use a
// bare MockStatsUpdater to assert on specific updates.
func NewPermissiveMock() *MockStatsUpdater {
	m := &MockStatsUpdater{}
	m.On("RegisterMetric", mock.Anything).Return().Maybe()
	m.On("Incr", mock.Anything).Return().Maybe()
	m.On("Decr", mock.Anything).Return().Maybe()
	return m
}

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Run() {
	m.Called()
}
