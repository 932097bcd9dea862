package store

import (
	"io/ioutil"
	"os"
)

func Load(path string) ([]byte, error) {
	return os.ReadFile(path) // want `direct filesystem operation os.ReadFile is not allowed`
}

func Legacy(path string) ([]byte, error) {
	return ioutil.ReadFile(path) // want `direct filesystem operation ioutil.ReadFile is not allowed`
}

var reader = os.ReadFile // want `direct filesystem operation os.ReadFile is not allowed`

func Env() string {
	return os.Getenv("HOME")
}
