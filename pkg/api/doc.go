// Package api serves the portal's JSON API and is its third enforcement
// surface. Guard.Protect applies the shared decision point and writes the
// contract error bodies; handlers never perform their own role checks.
package api
