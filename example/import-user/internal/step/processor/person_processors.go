// Package processor converts the case of person names.
package processor

import (
	"context"
	"strings"

	"github.com/tigerroll/chunkbatch/example/import-user/internal/domain"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// PersonToUppercaseProcessor upper-cases both names.
type PersonToUppercaseProcessor struct{}

var _ port.ItemProcessor[domain.Person, domain.Person] = PersonToUppercaseProcessor{}

func (PersonToUppercaseProcessor) Process(ctx context.Context, person domain.Person) (domain.Person, error) {
	transformed := domain.Person{
		FirstName: strings.ToUpper(person.FirstName),
		LastName:  strings.ToUpper(person.LastName),
	}
	logger.Infof("Converting (%s) into (%s)", person, transformed)
	return transformed, nil
}

// PersonToLowercaseProcessor lower-cases both names.
type PersonToLowercaseProcessor struct{}

var _ port.ItemProcessor[domain.Person, domain.Person] = PersonToLowercaseProcessor{}

func (PersonToLowercaseProcessor) Process(ctx context.Context, person domain.Person) (domain.Person, error) {
	transformed := domain.Person{
		FirstName: strings.ToLower(person.FirstName),
		LastName:  strings.ToLower(person.LastName),
	}
	logger.Infof("Converting (%s) into (%s)", person, transformed)
	return transformed, nil
}
