package urls

// Project and Jeedom documentation links shown in help text and
// troubleshooting hints.

// Project is the jeedom-finder source repository
const Project = "https://github.com/muurk/jeedomfinder"

// ProjectShort is Project without the scheme, for headers
const ProjectShort = "github.com/muurk/jeedomfinder"

// JeedomDocumentation is the Jeedom user documentation home
const JeedomDocumentation = "https://doc.jeedom.com/en_US/"

// JeedomInstallation covers installing Jeedom and reaching its web
// interface for the first time.
const JeedomInstallation = "https://doc.jeedom.com/en_US/installation/"

// Issues is where discovery problems can be reported
const Issues = Project + "/issues"
