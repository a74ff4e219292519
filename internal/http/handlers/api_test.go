package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/civicdesk/backend/internal/config"
	"github.com/civicdesk/backend/internal/db/memstore"
	httpapi "github.com/civicdesk/backend/internal/http"
	"github.com/civicdesk/backend/internal/service"
)

const adminKey = "secret"

var (
	asAdmin      = map[string]string{"X-Actor-Role": "admin", "X-Admin-Key": adminKey}
	asDepartment = map[string]string{"X-Actor-Role": "department"}
	adminOnly    = map[string]string{"X-Admin-Key": adminKey}
)

func call(router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	Expect(json.Unmarshal(w.Body.Bytes(), &out)).To(Succeed())
	return out
}

func errorDetails(w *httptest.ResponseRecorder) map[string]any {
	e := decode(w)["error"].(map[string]any)
	details, _ := e["details"].(map[string]any)
	return details
}

var _ = Describe("API", func() {
	var router *gin.Engine

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		ctx := context.Background()
		repo := memstore.New()
		registry := service.NewRegistry(repo, time.Minute, zerolog.Nop())
		Expect(registry.SeedDefaults(ctx)).To(Succeed())

		router = httpapi.Router(config.Config{
			AdminKey:        adminKey,
			CORSAllowed:     "*",
			MaxUploadSizeMB: 1,
			RequestTimeout:  5 * time.Second,
		}, httpapi.Deps{
			Store:      repo,
			Complaints: service.NewComplaintService(repo, registry, nil, zerolog.Nop()),
			Registry:   registry,
			Metrics:    &service.Metrics{Repo: repo, Registry: registry},
			Logger:     zerolog.Nop(),
		})
	})

	submit := func(body map[string]any) map[string]any {
		w := call(router, http.MethodPost, "/api/complaints", body, nil)
		Expect(w.Code).To(Equal(http.StatusCreated), w.Body.String())
		return decode(w)
	}

	pothole := func() map[string]any {
		return submit(map[string]any{
			"title":       "Pothole on Main St",
			"description": "Large pothole",
			"category":    "Roads",
			"location":    "Main St & 5th",
		})
	}

	It("reports health", func() {
		w := call(router, http.MethodGet, "/healthz", nil, nil)
		Expect(w.Code).To(Equal(http.StatusOK))
	})

	Describe("submission", func() {
		It("creates a pending complaint with defaults", func() {
			c := pothole()
			Expect(c["id"]).NotTo(BeEmpty())
			Expect(c["status"]).To(Equal("Pending"))
			Expect(c["priority"]).To(Equal("Medium"))
			Expect(c["upvotes"]).To(BeNumerically("==", 0))
			Expect(c["assigned_department_id"]).To(BeNil())
		})

		It("rejects an unknown category with field detail", func() {
			w := call(router, http.MethodPost, "/api/complaints", map[string]any{
				"title": "Noise", "description": "Loud", "category": "Noise", "location": "Elm St",
			}, nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorDetails(w)).To(HaveKeyWithValue("category", "invalid category"))
		})

		It("rejects a missing title", func() {
			w := call(router, http.MethodPost, "/api/complaints", map[string]any{
				"description": "Loud", "category": "Roads", "location": "Elm St",
			}, nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorDetails(w)).To(HaveKey("title"))
		})

		It("falls back to coordinates when no location is given", func() {
			c := submit(map[string]any{
				"title": "Broken light", "description": "Dark street", "category": "Utilities",
				"latitude": 18.5204, "longitude": 73.8567,
			})
			Expect(c["location"]).To(Equal("18.520400, 73.856700"))
		})

		It("returns 404 for an unknown complaint", func() {
			w := call(router, http.MethodGet, "/api/complaints/nope", nil, nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(decode(w)["error"]).To(HaveKeyWithValue("code", "NOT_FOUND"))
		})
	})

	Describe("lifecycle", func() {
		It("walks a complaint from submission to resolution", func() {
			id := pothole()["id"].(string)

			w := call(router, http.MethodPost, "/api/complaints/"+id+"/assign", map[string]any{"departmentId": "roads-dept"}, adminOnly)
			Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
			c := decode(w)
			Expect(c["status"]).To(Equal("In Progress"))
			Expect(c["assigned_department_id"]).To(Equal("roads-dept"))

			w = call(router, http.MethodGet, "/api/complaints/"+id+"/history", nil, nil)
			Expect(decode(w)["items"]).To(HaveLen(1))

			w = call(router, http.MethodPost, "/api/complaints/"+id+"/status", map[string]any{"newStatus": "Resolved", "notes": "patched"}, asDepartment)
			Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
			c = decode(w)
			Expect(c["status"]).To(Equal("Resolved"))
			Expect(c["resolution_notes"]).To(Equal("patched"))
			Expect(c["actual_completion_date"]).To(HavePrefix(time.Now().UTC().Format("2006-01-02")))

			w = call(router, http.MethodGet, "/api/complaints/"+id+"/history", nil, nil)
			items := decode(w)["items"].([]any)
			Expect(items).To(HaveLen(2))
			Expect(items[1].(map[string]any)["actor_role"]).To(Equal("department"))

			var g errgroup.Group
			for i := 0; i < 3; i++ {
				g.Go(func() error {
					call(router, http.MethodPost, "/api/complaints/"+id+"/upvote", nil, nil)
					return nil
				})
			}
			Expect(g.Wait()).To(Succeed())
			w = call(router, http.MethodGet, "/api/complaints/"+id, nil, nil)
			Expect(decode(w)["upvotes"]).To(BeNumerically("==", 3))
		})

		It("clears the completion date when a resolved complaint is reopened", func() {
			id := pothole()["id"].(string)
			w := call(router, http.MethodPost, "/api/complaints/"+id+"/status", map[string]any{"newStatus": "Resolved"}, asAdmin)
			Expect(w.Code).To(Equal(http.StatusOK))
			w = call(router, http.MethodPost, "/api/complaints/"+id+"/status", map[string]any{"newStatus": "on_hold"}, asAdmin)
			Expect(w.Code).To(Equal(http.StatusOK))
			c := decode(w)
			Expect(c["status"]).To(Equal("On Hold"))
			Expect(c["actual_completion_date"]).To(BeNil())
		})

		It("forbids citizens from changing status", func() {
			id := pothole()["id"].(string)
			w := call(router, http.MethodPost, "/api/complaints/"+id+"/status", map[string]any{"newStatus": "Resolved"}, nil)
			Expect(w.Code).To(Equal(http.StatusForbidden))
		})

		It("requires the admin key to assign", func() {
			id := pothole()["id"].(string)
			w := call(router, http.MethodPost, "/api/complaints/"+id+"/assign", map[string]any{"departmentId": "roads-dept"}, nil)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects assignment to an unknown department", func() {
			id := pothole()["id"].(string)
			w := call(router, http.MethodPost, "/api/complaints/"+id+"/assign", map[string]any{"departmentId": "ghost"}, adminOnly)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("unassigns without touching status", func() {
			id := pothole()["id"].(string)
			call(router, http.MethodPost, "/api/complaints/"+id+"/assign", map[string]any{"departmentId": "roads-dept"}, adminOnly)

			w := call(router, http.MethodDelete, "/api/complaints/"+id+"/assign", nil, adminOnly)
			Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
			c := decode(w)
			Expect(c["status"]).To(Equal("In Progress"))
			Expect(c["assigned_department_id"]).To(BeNil())

			w = call(router, http.MethodGet, "/api/complaints/"+id+"/history", nil, nil)
			Expect(decode(w)["items"]).To(HaveLen(2))
		})

		It("sets and clears an estimate", func() {
			id := pothole()["id"].(string)
			w := call(router, http.MethodPut, "/api/complaints/"+id+"/estimate", map[string]any{"date": "2030-01-15"}, asDepartment)
			Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
			Expect(decode(w)["estimated_completion_date"]).To(HavePrefix("2030-01-15"))

			w = call(router, http.MethodPut, "/api/complaints/"+id+"/estimate", map[string]any{"date": nil}, asDepartment)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["estimated_completion_date"]).To(BeNil())

			w = call(router, http.MethodPut, "/api/complaints/"+id+"/estimate", map[string]any{"date": "15/01/2030"}, asDepartment)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("detects stale updates", func() {
			c := pothole()
			id := c["id"].(string)
			w := call(router, http.MethodPatch, "/api/complaints/"+id, map[string]any{
				"priority":            "High",
				"expected_updated_at": c["updated_at"],
			}, adminOnly)
			Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())

			w = call(router, http.MethodPatch, "/api/complaints/"+id, map[string]any{
				"priority":            "Low",
				"expected_updated_at": c["updated_at"],
			}, adminOnly)
			Expect(w.Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("queries", func() {
		It("filters, searches and lists the unassigned queue", func() {
			id := pothole()["id"].(string)
			submit(map[string]any{"title": "Overflowing bin", "description": "Trash everywhere", "category": "Sanitation", "location": "Park Ave"})
			call(router, http.MethodPost, "/api/complaints/"+id+"/assign", map[string]any{"departmentId": "roads-dept"}, adminOnly)

			w := call(router, http.MethodGet, "/api/complaints?category=Sanitation", nil, nil)
			Expect(decode(w)["items"]).To(HaveLen(1))

			w = call(router, http.MethodGet, "/api/complaints?q=POTHOLE", nil, nil)
			Expect(decode(w)["items"]).To(HaveLen(1))

			w = call(router, http.MethodGet, "/api/complaints?department=roads-dept&status=In%20Progress", nil, nil)
			Expect(decode(w)["items"]).To(HaveLen(1))

			w = call(router, http.MethodGet, "/api/complaints/unassigned", nil, nil)
			items := decode(w)["items"].([]any)
			Expect(items).To(HaveLen(1))
			Expect(items[0].(map[string]any)["title"]).To(Equal("Overflowing bin"))

			w = call(router, http.MethodGet, "/api/complaints?status=Closed", nil, nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("filters and orders by priority", func() {
			pothole()
			submit(map[string]any{"title": "Exposed wire", "description": "Sparking", "category": "Utilities", "location": "Elm St", "priority": "High"})
			submit(map[string]any{"title": "Broken swing", "description": "Chain snapped", "category": "Parks", "location": "City Park", "priority": "Low"})

			w := call(router, http.MethodGet, "/api/complaints?priority=high", nil, nil)
			items := decode(w)["items"].([]any)
			Expect(items).To(HaveLen(1))
			Expect(items[0].(map[string]any)["title"]).To(Equal("Exposed wire"))

			w = call(router, http.MethodGet, "/api/complaints?sort=priority", nil, nil)
			items = decode(w)["items"].([]any)
			Expect(items).To(HaveLen(3))
			Expect(items[0].(map[string]any)["priority"]).To(Equal("High"))
			Expect(items[2].(map[string]any)["priority"]).To(Equal("Low"))

			w = call(router, http.MethodGet, "/api/complaints?priority=Urgent", nil, nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("suggests a department by category", func() {
			id := pothole()["id"].(string)
			w := call(router, http.MethodGet, "/api/complaints/"+id+"/suggestion", nil, nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			dept := decode(w)["department"].(map[string]any)
			Expect(dept["id"]).To(Equal("roads-dept"))
		})

		It("finds complaints near a point", func() {
			submit(map[string]any{"title": "Bus stop", "description": "Shelter broken", "category": "Public Transport", "location": "Stop 4", "latitude": 18.52, "longitude": 73.85})
			submit(map[string]any{"title": "Far away", "description": "Elsewhere", "category": "Parks", "location": "Mumbai", "latitude": 19.07, "longitude": 72.87})

			w := call(router, http.MethodGet, "/api/complaints/nearby?lat=18.5204&lon=73.8567&radiusKm=5", nil, nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["items"]).To(HaveLen(1))

			w = call(router, http.MethodGet, "/api/complaints/nearby?lat=18.5", nil, nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("metrics", func() {
		It("summarises complaints", func() {
			id := pothole()["id"].(string)
			submit(map[string]any{"title": "Bin", "description": "Full", "category": "Sanitation", "location": "Park Ave", "priority": "High"})
			call(router, http.MethodPost, "/api/complaints/"+id+"/status", map[string]any{"newStatus": "Resolved"}, asAdmin)

			w := call(router, http.MethodGet, "/api/metrics/overview", nil, nil)
			o := decode(w)
			Expect(o["total"]).To(BeNumerically("==", 2))
			Expect(o["resolved"]).To(BeNumerically("==", 1))
			Expect(o["highPriority"]).To(BeNumerically("==", 1))
			Expect(o["resolutionRate"]).To(BeNumerically("==", 50))

			w = call(router, http.MethodGet, "/api/metrics/categories", nil, nil)
			Expect(decode(w)["items"]).To(HaveLen(2))

			w = call(router, http.MethodGet, "/api/metrics/recent?limit=1", nil, nil)
			Expect(decode(w)["items"]).To(HaveLen(1))
		})

		It("reports zero success for an idle department", func() {
			w := call(router, http.MethodGet, "/api/departments/parks-dept/stats", nil, nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			s := decode(w)
			Expect(s["assignedCount"]).To(BeNumerically("==", 0))
			Expect(s["successRate"]).To(BeNumerically("==", 0))

			w = call(router, http.MethodGet, "/api/departments/ghost/stats", nil, nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("lists overdue complaints as of a date", func() {
			id := pothole()["id"].(string)
			call(router, http.MethodPut, "/api/complaints/"+id+"/estimate", map[string]any{"date": "2030-01-15"}, asDepartment)

			w := call(router, http.MethodGet, "/api/metrics/overdue?asOf=2030-01-16", nil, nil)
			Expect(decode(w)["items"]).To(ConsistOf(id))

			w = call(router, http.MethodGet, "/api/metrics/overdue?asOf=2030-01-15", nil, nil)
			Expect(decode(w)["items"]).To(BeEmpty())
		})
	})

	Describe("departments", func() {
		It("imports departments from CSV", func() {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			part, err := mw.CreateFormFile("departments", "departments.csv")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("id,name,description,contact_email,contact_phone\nlibrary-dept,Libraries,Public libraries,lib@city.gov,555-0100\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(mw.Close()).To(Succeed())

			req := httptest.NewRequest(http.MethodPost, "/api/departments/import", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			req.Header.Set("X-Admin-Key", adminKey)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())

			w = call(router, http.MethodGet, "/api/departments/library-dept", nil, nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decode(w)["contact_phone"]).To(Equal("555-0100"))

			w = call(router, http.MethodGet, "/api/departments", nil, nil)
			Expect(decode(w)["items"]).To(HaveLen(7))
		})

		It("edits a department", func() {
			w := call(router, http.MethodPut, "/api/departments/parks-dept", map[string]any{"name": "Parks", "contact_email": "not-an-email"}, adminOnly)
			Expect(w.Code).To(Equal(http.StatusBadRequest))

			w = call(router, http.MethodPut, "/api/departments/parks-dept", map[string]any{"name": "Parks", "contact_email": "parks@city.gov"}, adminOnly)
			Expect(w.Code).To(Equal(http.StatusOK), w.Body.String())
			Expect(decode(w)["name"]).To(Equal("Parks"))
		})
	})
})
