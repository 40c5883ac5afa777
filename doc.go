// Package tessera is the composition root of the tessera object-graph store.
//
// Tessera stores objects of registered types as documents in a key/value
// store. Objects that refer to other stored objects are written as reference
// markers ({"$ref": [type, key]}) and read back as placeholders, which Load
// fills in concurrently up to a chosen depth. Every read records the
// document's concurrency token; Save writes only changed objects and fails
// with core.ErrConflict when someone else wrote in between.
//
// Features:
//
//   - **Schema**: types declared in Go or in a YAML file (tessera.yaml), resolved by discriminator fields.
//   - **Identity**: one in-memory instance per key within a load, so cyclic graphs stay cyclic.
//   - **Adapters**: JSON/YAML files (default), embedded BadgerDB, or memory.
//   - **Typed Access**: `NewTypedRepository[T]` maps Go structs to registered types.
//   - **Watch**: change notifications on adapters that support them.
//
// Usage:
//
//	store, err := tessera.Open("./data",
//		tessera.WithSchemaFile("tessera.yaml"),
//		tessera.WithLogger(logger),
//	)
//
//	bob, err := store.FindByID(ctx, "Person", "bob")
//	err = store.Load(ctx, bob, 2)
package tessera
