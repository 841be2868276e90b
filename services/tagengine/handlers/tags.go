// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tribo-social/tribo/services/tagengine/engine"
)

// assignmentView is one user tag in API responses.
type assignmentView struct {
	TagID      string    `json:"tagId"`
	AssignedAt time.Time `json:"assignedAt"`
}

// GrantTag manually assigns a tag to a user.
//
// # Description
//
// Routes through the reconciler so a repeat grant is a no-op and the
// acquisition notification fires at most once. 404 for tags not in the
// catalog.
func GrantTag(reconciler *engine.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		tagID := c.Param("tagId")
		slog.Info("Received request to grant tag", "userId", userID, "tagId", tagID)

		granted, err := reconciler.Grant(c.Request.Context(), userID, tagID)
		if err != nil {
			if errors.Is(err, engine.ErrUnknownTag) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown tag"})
				return
			}
			slog.Error("failed to grant tag", "userId", userID, "tagId", tagID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to grant tag"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": userID, "tagId": tagID, "changed": granted})
	}
}

// RevokeTag manually removes a tag from a user. Idempotent.
func RevokeTag(reconciler *engine.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		tagID := c.Param("tagId")
		slog.Info("Received request to revoke tag", "userId", userID, "tagId", tagID)

		revoked, err := reconciler.Revoke(c.Request.Context(), userID, tagID)
		if err != nil {
			if errors.Is(err, engine.ErrUnknownTag) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown tag"})
				return
			}
			slog.Error("failed to revoke tag", "userId", userID, "tagId", tagID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke tag"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": userID, "tagId": tagID, "changed": revoked})
	}
}

// ListUserTags returns a user's current tag assignments.
func ListUserTags(store engine.TagStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		assignments, err := store.ListAssignments(c.Request.Context(), userID)
		if err != nil {
			slog.Error("failed to list tag assignments", "userId", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tag assignments"})
			return
		}

		views := make([]assignmentView, 0, len(assignments))
		for tagID, assignedAt := range assignments {
			views = append(views, assignmentView{TagID: tagID, AssignedAt: assignedAt})
		}
		c.JSON(http.StatusOK, gin.H{"userId": userID, "tags": views})
	}
}
