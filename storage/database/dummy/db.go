// Package dummydb provides in-memory repositories backing handler and service
// tests.
package dummydb

import (
	"sync"

	"github.com/ecolehq/ecole/core/contact"
	"github.com/ecolehq/ecole/core/course"
	"github.com/ecolehq/ecole/core/user"
)

type (
	DB struct {
		user    *userTable
		course  *courseTable
		contact *contactTable
	}

	userTable struct {
		sync.RWMutex
		identities map[string]*user.User
		profiles   map[string]struct{} // ids with a profile row
	}

	courseTable struct {
		sync.RWMutex
		courses     map[string]*course.Course
		lessons     map[string]*course.Lesson
		enrollments map[string]*course.Enrollment     // by (userID|courseID)
		progress    map[string]*course.LessonProgress // by (userID|lessonID)
		materials   map[string]*course.Material
	}

	contactTable struct {
		sync.RWMutex
		messages map[string]*contact.Message
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{
			identities: make(map[string]*user.User),
			profiles:   make(map[string]struct{}),
		},
		course: &courseTable{
			courses:     make(map[string]*course.Course),
			lessons:     make(map[string]*course.Lesson),
			enrollments: make(map[string]*course.Enrollment),
			progress:    make(map[string]*course.LessonProgress),
			materials:   make(map[string]*course.Material),
		},
		contact: &contactTable{messages: make(map[string]*contact.Message)},
	}
	return db, nil
}

func pairKey(a, b string) string { return a + "|" + b }
