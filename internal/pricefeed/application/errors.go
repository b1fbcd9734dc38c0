package application

import "errors"

var ErrInvalidPrice = errors.New("price must be positive")
