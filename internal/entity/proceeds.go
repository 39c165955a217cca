package entity

import "math/big"

type Proceeds struct {
	Owner   string   `json:"owner"`
	Balance *big.Int `json:"balance"`
}
