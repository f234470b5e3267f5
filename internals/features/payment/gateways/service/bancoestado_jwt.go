package service

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"hnet_backend/internals/features/payment/gateways/dto"
)

// DecodeBancoEstadoJWT verifies the HS256 token BancoEstado posts to the
// status endpoint and returns its raw claims. Any other signing algorithm is
// rejected.
func DecodeBancoEstadoJWT(token, secret string) (jwt.MapClaims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("the BancoEstado JWT cannot be empty")
	}
	if secret == "" {
		return nil, fmt.Errorf("no secret configured to validate the BancoEstado JWT")
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("BancoEstado sent an unsupported algorithm (%s)", t.Method.Alg())
		}
		return []byte(secret), nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("invalid BancoEstado JWT: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("the BancoEstado JWT signature is not valid")
	}

	return claims, nil
}

// CallbackFromClaims maps the JWT payload into the BancoEstado variant.
// numero_cuenta arrives under two different spellings depending on the
// channel.
func CallbackFromClaims(claims jwt.MapClaims) dto.BancoEstadoCallback {
	str := func(key string) string {
		value, _ := claims[key].(string)
		return value
	}

	numeroCuenta := str("numero_cuenta")
	if numeroCuenta == "" {
		numeroCuenta = str("numeroCuenta")
	}

	return dto.BancoEstadoCallback{
		OrderID:      str("oc"),
		Resultado:    str("resultado"),
		Fecha:        str("fecha"),
		Hora:         str("hora"),
		Code:         str("code"),
		ModoPago:     str("modoPago"),
		MarcaTarjeta: str("marcaTarjeta"),
		NumeroCuenta: numeroCuenta,
		TipoTarjeta:  str("tipoTarjeta"),
		Emisor:       str("emisor"),
		Token:        str("token"),
	}
}
