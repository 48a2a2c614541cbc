// Package tui implements the interactive terminal wizard of jeedom-finder.
//
// Built on Bubble Tea, it follows the Elm architecture: models hold all
// state, Update returns the new model plus commands, and View is a pure
// function of the model.
//
// # Screens
//
//   - Search: runs a discovery session, shows a spinner and a progress bar of
//     finished strategies, lists verified hosts as cards as they arrive, and
//     shows the latest worker error in a banner
//   - Host: details of the selected host (name, URL, address, description)
//
// Every screen is wrapped by RenderApplicationContainer, which adds the
// application header and a footer with context-sensitive help.
//
// # Talking to the coordinator
//
// The search screen never blocks Update. It pulls coordinator
// notifications with a tea.Cmd that calls Next and turns the result into a
// message, then issues the next pull. Each search has a generation number;
// messages from a search replaced by a rescan are dropped. The screen keeps
// its own URL to row index to update merged hosts in place.
//
// Quitting or rescanning during a search calls Stop first and acts once it
// has returned.
//
// # Usage Example
//
//	hosts, err := tui.Run(ctx, discovery.NewCoordinator(), settings.Options())
//	if err != nil {
//	    return err
//	}
//
// # Key Bindings
//
//   - Search: ↑/↓ navigate, / filter, Enter details, r rescan, q quit
//   - Host: Esc back, q quit
//   - Everywhere: Ctrl+C stops the search and quits
package tui
