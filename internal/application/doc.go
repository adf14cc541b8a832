// Package application provides the quest, task and proof verification use
// cases. It orchestrates the domain rules over the ports implemented by the
// infrastructure layer.
package application
