package oidc

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time is.
// Valid for: Req via NewRequest, ValidateIdToken, ValidateJWTAccessToken
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *reqOptions:
			v.withNowFunc = now
		case *validationOptions:
			v.withNowFunc = now
		}
	}
}

// WithExpirySkew provides an optional clock-skew tolerance used when checking
// the time related claims (exp, iat, auth_time) of a token.
// Valid for: ValidateIdToken, ValidateJWTAccessToken
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*validationOptions); ok {
			v.withExpirySkew = d
		}
	}
}

// WithLogger provides an optional hclog.Logger used to trace the network
// round trips of a flow.  Token material is never logged.
// Valid for: NewConfig
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withLogger = l
		}
	}
}
