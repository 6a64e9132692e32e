// Package validation checks option and configuration structs before a scope
// touches the database server.
//
// # Struct Tag Validation
//
//	type Options struct {
//	    DBPrefix string `mapstructure:"db_prefix" validate:"required,max=32,dbident"`
//	}
//	err := validation.Validate(opts)
//
// # Programmatic Validation
//
//	err := validation.New().
//	    Required("name", cfg.Name).
//	    OneOf("driver", cfg.Driver, drivers).
//	    Validate()
//
// Both forms return an *errors.AppError with code INVALID_CONFIG whose
// details list the failing fields.
package validation
