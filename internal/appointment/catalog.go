package appointment

import (
	"fmt"
	"time"

	"github.com/hackgods/dental-clinic-portal/internal/apperr"
)

// Service is one bookable treatment. Duration is the length of a single visit.
type Service struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

type Catalog map[string]Service

// DefaultCatalog lists the clinic's treatments.
func DefaultCatalog() Catalog {
	return NewCatalog(
		Service{ID: "root-canal", Name: "Root Canal", Duration: 90 * time.Minute},
		Service{ID: "teeth-alignment", Name: "Teeth Alignment", Duration: 30 * time.Minute},
		Service{ID: "cosmetic-dentistry", Name: "Cosmetic Dentistry", Duration: 60 * time.Minute},
		Service{ID: "oral-hygiene", Name: "Oral Hygiene", Duration: 45 * time.Minute},
		Service{ID: "live-advisory", Name: "Live Advisory", Duration: 30 * time.Minute},
		Service{ID: "cavity-inspection", Name: "Cavity Inspection", Duration: 30 * time.Minute},
		Service{ID: "dental-implants", Name: "Dental Implants", Duration: 60 * time.Minute},
		Service{ID: "pediatric-dentistry", Name: "Pediatric Dentistry", Duration: 45 * time.Minute},
	)
}

func NewCatalog(services ...Service) Catalog {
	c := make(Catalog, len(services))
	for _, s := range services {
		c[s.ID] = s
	}
	return c
}

func (c Catalog) Lookup(id string) (Service, error) {
	s, ok := c[id]
	if !ok {
		return Service{}, fmt.Errorf("%w: unknown service %q", apperr.ErrValidation, id)
	}
	return s, nil
}
