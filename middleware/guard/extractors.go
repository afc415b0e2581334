package guard

import (
	"strings"

	"github.com/goliatone/go-router"
)

// Extractor pulls a raw token out of a request
type Extractor func(ctx router.Context) (string, error)

// ExtractRawToken tries extractors in order and returns the first token found
func ExtractRawToken(ctx router.Context, extractors []Extractor) (string, error) {
	err := ErrMissingOrMalformed

	for _, extractor := range extractors {
		raw, e := extractor(ctx)
		if raw != "" && e == nil {
			return raw, nil
		}
		if e != nil {
			err = e
		}
	}

	return "", err
}

// Extractors parses a lookup such as "cookie:access_token,header:Authorization"
// into extractors, keeping their order
func Extractors(tokenLookup string, authSchemes ...string) []Extractor {
	extractors := make([]Extractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 && strings.TrimSpace(authSchemes[0]) != "" {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}

		source := strings.TrimSpace(parts[0])
		name := strings.TrimSpace(parts[1])
		if name == "" {
			continue
		}

		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "param":
			extractors = append(extractors, fromParam(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

// fromHeader extracts "<scheme> <token>" from a request header
func fromHeader(header string, authScheme string) Extractor {
	return func(ctx router.Context) (string, error) {
		a := ctx.GetString(header, "")
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrMissingOrMalformed
	}
}

func fromQuery(param string) Extractor {
	return func(ctx router.Context) (string, error) {
		token := ctx.Query(param, "")
		if token == "" {
			return "", ErrMissingOrMalformed
		}
		return token, nil
	}
}

func fromParam(param string) Extractor {
	return func(ctx router.Context) (string, error) {
		token := ctx.Param(param)
		if token == "" {
			return "", ErrMissingOrMalformed
		}
		return token, nil
	}
}

func fromCookie(name string) Extractor {
	return func(ctx router.Context) (string, error) {
		token := ctx.Cookies(name)
		if token == "" {
			return "", ErrMissingOrMalformed
		}
		return token, nil
	}
}
