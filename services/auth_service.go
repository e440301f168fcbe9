package services

import (
	"errors"

	"gorm.io/gorm"

	"mealscan-backend/models"
	"mealscan-backend/utils"
)

type AuthService struct {
	db *gorm.DB
}

func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{db: db}
}

func (s *AuthService) Register(email, password, fullName string) error {
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	user := models.User{
		Email:    email,
		Password: hashed,
		FullName: fullName,
	}
	return s.db.Create(&user).Error
}

func (s *AuthService) Authenticate(email, password string) (string, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return "", errors.New("invalid email or password")
	}
	if !utils.CheckPasswordHash(password, user.Password) {
		return "", errors.New("invalid email or password")
	}
	return utils.GenerateJWT(user.ID, user.Email)
}
