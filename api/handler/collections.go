package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/neardup/models"
	"github.com/use-agent/neardup/store"
)

func toRecord(r store.Record) models.Record {
	return models.Record{ID: r.ID, Fingerprint: models.Hash(r.Fingerprint), Hex: models.Hash(r.Fingerprint).Hex()}
}

// PutCollection returns a handler for PUT /api/v1/collections/:name.
func PutCollection(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if st == nil {
			respondError(c, errStoreDisabled)
			return
		}
		var req models.CollectionPutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		records := make([]store.Record, len(req.Items))
		for i, it := range req.Items {
			records[i] = store.Record{ID: it.ID, Fingerprint: uint64(*it.Fingerprint)}
		}
		name := c.Param("name")
		n, err := st.Put(name, records)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.CollectionPutResponse{
			Success:    true,
			Collection: name,
			Stored:     n,
		})
	}
}

// GetRecord returns a handler for GET /api/v1/collections/:name/fingerprints/:id.
func GetRecord(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if st == nil {
			respondError(c, errStoreDisabled)
			return
		}
		r, err := st.Get(c.Param("name"), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		rec := toRecord(r)
		c.JSON(http.StatusOK, models.RecordResponse{Success: true, Record: &rec})
	}
}

// DeleteRecord returns a handler for DELETE /api/v1/collections/:name/fingerprints/:id.
func DeleteRecord(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if st == nil {
			respondError(c, errStoreDisabled)
			return
		}
		if err := st.Delete(c.Param("name"), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.DeleteResponse{Success: true, Deleted: 1})
	}
}

// DropCollection returns a handler for DELETE /api/v1/collections/:name.
func DropCollection(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if st == nil {
			respondError(c, errStoreDisabled)
			return
		}
		n, err := st.Drop(c.Param("name"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.DeleteResponse{Success: true, Deleted: n})
	}
}

// QueryCollection returns a handler for POST /api/v1/collections/:name/query.
func QueryCollection(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if st == nil {
			respondError(c, errStoreDisabled)
			return
		}
		totalStart := time.Now()

		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		searchStart := time.Now()
		found, err := st.Query(c.Param("name"), uint64(*req.Fingerprint), *req.MaxDistance)
		if err != nil {
			respondError(c, err)
			return
		}
		searchMs := time.Since(searchStart).Milliseconds()

		matches := make([]models.Match, len(found))
		for i, m := range found {
			matches[i] = models.Match{Record: toRecord(m.Record), Distance: m.Distance}
		}
		c.JSON(http.StatusOK, models.QueryResponse{
			Success: true,
			Matches: matches,
			Timing: models.TimingInfo{
				TotalMs:  time.Since(totalStart).Milliseconds(),
				SearchMs: searchMs,
			},
		})
	}
}
