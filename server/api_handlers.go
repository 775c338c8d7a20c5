package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/jrsteele09/go-logistics-auth/policy"
	"github.com/rs/zerolog/log"
)

// The /api handlers stand in for the back office resources. They only echo what the
// access decision was based on; the business data lives elsewhere.

type overview struct {
	Users  int            `json:"users"`
	ByRole map[string]int `json:"byRole"`
}

func (s *Server) AdminOverviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const pageSize = 100
		ov := overview{ByRole: make(map[string]int)}
		for offset := 0; ; offset += pageSize {
			page, err := s.users.List(r.Context(), offset, pageSize)
			if err != nil {
				log.Err(err).Msg("failed to list users")
				writeError(w, http.StatusInternalServerError, "failed to load overview", nil)
				return
			}
			for _, u := range page {
				ov.Users++
				ov.ByRole[string(u.Role)]++
			}
			if len(page) < pageSize {
				break
			}
		}
		writeSuccess(w, http.StatusOK, "", ov)
	}
}

type resourceView struct {
	Resource  string        `json:"resource"`
	UserID    string        `json:"userId"`
	Role      identity.Role `json:"role"`
	CompanyID string        `json:"companyId,omitempty"`
}

func (s *Server) resource(name string, companyFrom func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		view := resourceView{Resource: name, UserID: id.UserID, Role: id.RoleName, CompanyID: id.Company()}
		if companyFrom != nil {
			if c := companyFrom(r); c != "" {
				view.CompanyID = c
			}
		}
		writeSuccess(w, http.StatusOK, "", view)
	}
}

func (s *Server) DriverTripsHandler() http.HandlerFunc {
	return s.resource("driver_trips", nil)
}

func (s *Server) StaffBoardHandler() http.HandlerFunc {
	return s.resource("staff_board", nil)
}

func (s *Server) CompanyOrdersHandler() http.HandlerFunc {
	return s.resource("company_orders", func(r *http.Request) string {
		return mux.Vars(r)[policy.CompanyParam]
	})
}

func (s *Server) ReportsHandler() http.HandlerFunc {
	return s.resource("reports", func(r *http.Request) string {
		return r.URL.Query().Get(policy.CompanyParam)
	})
}
