package shell

import (
	"os"
)

// fdSet holds the descriptors the coordinator owns for one pipeline. Anything
// still in the set when Close is called gets closed, so every exit path from a
// pipeline releases its files.
type fdSet struct {
	files []*os.File
}

// Add takes ownership of f.
func (s *fdSet) Add(f *os.File) *os.File {
	if f != nil {
		s.files = append(s.files, f)
	}
	return f
}

// Release closes f now and forgets it. Files not owned by the set are left
// alone.
func (s *fdSet) Release(f *os.File) error {
	if f == nil {
		return nil
	}
	for i, owned := range s.files {
		if owned == f {
			s.files = append(s.files[:i], s.files[i+1:]...)
			return f.Close()
		}
	}
	return nil
}

// Len returns the number of open files in the set.
func (s *fdSet) Len() int {
	return len(s.files)
}

// Close closes every file still in the set and returns the last error.
func (s *fdSet) Close() error {
	var lastErr error
	for _, f := range s.files {
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}
	s.files = nil
	return lastErr
}
