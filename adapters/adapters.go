// Package adapters registers the default set of single-video resolvers via
// side effects. Import it for its side effects:
//
//	import _ "uvp/adapters"
package adapters

import (
	_ "uvp/adapter/direct"
	_ "uvp/adapter/youtube"
)
