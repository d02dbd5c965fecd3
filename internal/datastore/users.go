// users.go: school and user reference data operations
package datastore

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/classcount/classcount-go/internal/errors"
)

// SaveSchool creates or updates a school.
func (ds *DataStore) SaveSchool(school *School) error {
	if err := ds.DB.Save(school).Error; err != nil {
		return fmt.Errorf("saving school: %w", err)
	}
	return nil
}

// GetSchool retrieves a school by ID.
func (ds *DataStore) GetSchool(id uint) (School, error) {
	var school School
	if err := ds.DB.First(&school, id).Error; err != nil {
		return School{}, wrapLookupError(err, "school", id)
	}
	return school, nil
}

// GetAllSchools returns all schools ordered by name.
func (ds *DataStore) GetAllSchools() ([]School, error) {
	var schools []School
	if err := ds.DB.Order("name").Find(&schools).Error; err != nil {
		return nil, fmt.Errorf("getting schools: %w", err)
	}
	return schools, nil
}

// DeleteSchool removes a school and, through the cascade, its users.
func (ds *DataStore) DeleteSchool(id uint) error {
	if err := ds.DB.Delete(&School{}, id).Error; err != nil {
		return fmt.Errorf("deleting school %d: %w", id, err)
	}
	return nil
}

// SaveUser creates or updates a user. A duplicate email is a conflict.
func (ds *DataStore) SaveUser(user *User) error {
	if err := ds.DB.Save(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.New(fmt.Errorf("email %s already registered: %w", user.Email, err)).
				Component("datastore").
				Category(errors.CategoryConflict).
				Build()
		}
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID, preloading the school.
func (ds *DataStore) GetUser(id uint) (User, error) {
	var user User
	if err := ds.DB.Preload("School").First(&user, id).Error; err != nil {
		return User{}, wrapLookupError(err, "user", id)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address.
func (ds *DataStore) GetUserByEmail(email string) (User, error) {
	var user User
	if err := ds.DB.Preload("School").Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, errors.New(fmt.Errorf("user %s not found: %w", email, err)).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return User{}, fmt.Errorf("getting user by email: %w", err)
	}
	return user, nil
}

// GetAllUsers returns all users with their schools.
func (ds *DataStore) GetAllUsers() ([]User, error) {
	var users []User
	if err := ds.DB.Preload("School").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("getting users: %w", err)
	}
	return users, nil
}
