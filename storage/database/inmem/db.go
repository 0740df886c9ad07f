package inmemdb

import (
	"sync"

	"github.com/uniroute/uniroute/core/application"
	"github.com/uniroute/uniroute/core/university"
	"github.com/uniroute/uniroute/core/user"
)

type (
	DB struct {
		user        *userTable
		university  *universityTable
		program     *programTable
		application *applicationTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	universityTable struct {
		mutex sync.RWMutex
		table map[string]*university.University
	}

	programTable struct {
		mutex sync.RWMutex
		table map[string]*university.Program
	}

	applicationTable struct {
		mutex sync.RWMutex
		table map[string]*application.Application
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:        &userTable{table: make(map[string]*user.User)},
		university:  &universityTable{table: make(map[string]*university.University)},
		program:     &programTable{table: make(map[string]*university.Program)},
		application: &applicationTable{table: make(map[string]*application.Application)},
	}
	return db, nil
}
