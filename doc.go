// Package paints keeps track of cosmetic paints and the users they are
// assigned to.
//
// # Paints
//
// A paint is a named visual decoration: a linear or radial gradient, or an
// image, each optionally layered over drop shadows. Paints are described
// upstream as loosely-typed JSON records. [Parser] turns one record into an
// immutable [models.Paint]; records that cannot become a paint are dropped,
// never reported to the caller.
//
// # Registry
//
// [Registry] holds two maps behind a single reader/writer lock: paint id to
// paint, and user to assigned paint. Renderers call [Registry.GetPaint] from
// as many goroutines as they like. Writes come from two places:
//
//   - [Loader], which fetches the whole cosmetics list once at startup and
//     applies it with [Registry.LoadPaints].
//   - Incremental events ([Registry.AddPaint], [Registry.AssignPaintToUser],
//     [Registry.ClearPaintFromUser]), usually delivered by
//     [github.com/chatpaint/paints/pkg/eventapi].
//
// Parsing, including fetching the image of a URL paint, always happens
// before the write lock is taken, so a slow image host never stalls readers.
//
// # Collaborators
//
// The upstream HTTP API, the image host and the event stream sit behind small
// interfaces ([Fetcher], [ImageStore], eventapi.Sink). Default implementations
// live in pkg/fetch, pkg/imagestore and pkg/eventapi.
package paints
