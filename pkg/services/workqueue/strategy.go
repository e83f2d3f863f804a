package workqueue

import "sync"

// ConcurrencyStrategy controls how tasks are allowed to start concurrently.
// The strategy tracks running tasks and decides whether a new one can start.
// Build tasks invoke the external build tool; aux tasks do not.
type ConcurrencyStrategy interface {
	// CanStartBuild returns true if a build task can start given current state
	CanStartBuild() bool
	// CanStartAux returns true if an aux task can start given current state
	CanStartAux() bool
	// OnStartBuild is called when a build task starts
	OnStartBuild()
	// OnStartAux is called when an aux task starts
	OnStartAux()
	// OnCompleteBuild is called when a build task completes
	OnCompleteBuild()
	// OnCompleteAux is called when an aux task completes
	OnCompleteAux()
}

// SerializedStrategy serializes both classes: one build task and one aux
// task at a time, though a build and an aux task can run in parallel.
type SerializedStrategy struct {
	mu           sync.Mutex
	buildRunning bool
	auxRunning   bool
}

// NewSerializedStrategy creates a strategy that serializes build tasks and
// serializes aux tasks independently.
func NewSerializedStrategy() *SerializedStrategy {
	return &SerializedStrategy{}
}

func (s *SerializedStrategy) CanStartBuild() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.buildRunning
}

func (s *SerializedStrategy) CanStartAux() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.auxRunning
}

func (s *SerializedStrategy) OnStartBuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buildRunning = true
}

func (s *SerializedStrategy) OnStartAux() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auxRunning = true
}

func (s *SerializedStrategy) OnCompleteBuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buildRunning = false
}

func (s *SerializedStrategy) OnCompleteAux() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auxRunning = false
}

// ThrottledBuildStrategy allows up to maxConcurrent build tasks in parallel.
// Aux tasks always start; builds are the expensive resource worth bounding.
type ThrottledBuildStrategy struct {
	mu            sync.Mutex
	maxConcurrent int
	buildsRunning int
}

// NewThrottledBuildStrategy creates a strategy that allows up to
// maxConcurrent build tasks to run in parallel.
func NewThrottledBuildStrategy(maxConcurrent int) *ThrottledBuildStrategy {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ThrottledBuildStrategy{
		maxConcurrent: maxConcurrent,
	}
}

func (s *ThrottledBuildStrategy) CanStartBuild() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildsRunning < s.maxConcurrent
}

func (s *ThrottledBuildStrategy) CanStartAux() bool {
	return true
}

func (s *ThrottledBuildStrategy) OnStartBuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buildsRunning++
}

func (s *ThrottledBuildStrategy) OnStartAux() {
	// No-op: aux tasks are not tracked
}

func (s *ThrottledBuildStrategy) OnCompleteBuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buildsRunning > 0 {
		s.buildsRunning--
	}
}

func (s *ThrottledBuildStrategy) OnCompleteAux() {
	// No-op: aux tasks are not tracked
}
