package handler

import (
	"errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
)

// RegisterValidators 注册自定义校验标签
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}
	return v.RegisterValidation("phase", validatePhase)
}

// validatePhase 阶段名校验，大小写不敏感
func validatePhase(fl validator.FieldLevel) bool {
	_, err := phase.ParsePhase(fl.Field().String())
	return err == nil
}
