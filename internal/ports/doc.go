// Package ports declares the boundaries the quest and verification services
// depend on: the vision classifier client, persistence, proof storage and
// metrics. Infrastructure packages implement them; application code only
// sees these interfaces.
package ports
