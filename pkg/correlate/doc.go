// Package correlate links boot artifacts to the configurations that built
// them, using boot templates, configuration sessions and component desired
// state as evidence, and filters configurations and images by target.
package correlate
